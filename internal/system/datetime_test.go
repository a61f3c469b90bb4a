package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateTime(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{name: "zone-less", input: "2020-03-15T18:00:00", want: time.Date(2020, 3, 15, 18, 0, 0, 0, time.UTC)},
		{name: "fractional", input: "2020-03-15T18:00:00.250", want: time.Date(2020, 3, 15, 18, 0, 0, 250_000_000, time.UTC)},
		{name: "utc suffix", input: "2020-03-15T18:00:00Z", want: time.Date(2020, 3, 15, 18, 0, 0, 0, time.UTC)},
		{name: "offset", input: "2020-03-15T20:00:00+02:00", want: time.Date(2020, 3, 15, 18, 0, 0, 0, time.UTC)},
		{name: "garbage", input: "not a date time", wantErr: true},
		{name: "date only", input: "2020-03-15", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDateTime(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}
