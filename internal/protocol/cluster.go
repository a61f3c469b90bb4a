package protocol

// ResourceLimit advertises one kind of resource a job may request.
type ResourceLimit struct {
	Type         string
	MaxValue     string
	DefaultValue string
}

func (r ResourceLimit) toJSON() *Object {
	obj := NewObject().Set("type", r.Type)
	if r.MaxValue != "" {
		obj.Set("maxValue", r.MaxValue)
	}
	if r.DefaultValue != "" {
		obj.Set("defaultValue", r.DefaultValue)
	}
	return obj
}

// PlacementConstraint is a name/value pair a job may use to select a node.
type PlacementConstraint struct {
	Name  string
	Value string
}

func (c PlacementConstraint) toJSON() *Object {
	return NewObject().Set("name", c.Name).Set("value", c.Value)
}

// JobConfig describes a custom configuration value a job may set.
type JobConfig struct {
	Name      string
	ValueType string
	Value     string
}

func (c JobConfig) toJSON() *Object {
	obj := NewObject().Set("name", c.Name).Set("valueType", c.ValueType)
	if c.Value != "" {
		obj.Set("value", c.Value)
	}
	return obj
}

// ClusterCapabilities is everything a CLUSTER_INFO response reports except
// the container settings.
type ClusterCapabilities struct {
	Queues               []string
	ResourceLimits       []ResourceLimit
	PlacementConstraints []PlacementConstraint
	Config               []JobConfig
}

// ContainerSettings is the image policy of a container-enabled cluster.
type ContainerSettings struct {
	Images             []string
	DefaultImage       string
	AllowUnknownImages bool
}
