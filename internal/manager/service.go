package manager

import (
	"fmt"
	"sort"
)

// ServiceSpec identifies one supervised service. ProcessName is its
// identity; Section is the configuration section it came from and is only
// used in logs.
type ServiceSpec struct {
	Section     string `json:"section,omitempty" mapstructure:"name"`
	ProcessName string `json:"process_name" mapstructure:"processname"`
	ServiceName string `json:"service_name" mapstructure:"servicename"`
	PIDFile     string `json:"pidfile" mapstructure:"pidfile"`
}

func (s ServiceSpec) String() string {
	return fmt.Sprintf("%s(service=%s pidfile=%s)", s.ProcessName, s.ServiceName, s.PIDFile)
}

// Services maps a configuration section name to its service.
type Services map[string]ServiceSpec

// Sorted returns the services ordered by section name so that log output
// and reports are stable between sweeps.
func (s Services) Sorted() []ServiceSpec {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]ServiceSpec, 0, len(keys))
	for _, k := range keys {
		spec := s[k]
		if spec.Section == "" {
			spec.Section = k
		}
		out = append(out, spec)
	}
	return out
}
