package stage

import "fmt"

// Health is a collaborator's answer to "could this stage run right now".
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

func Unhealthy(name, detail string) Health {
	return Health{Name: name, Detail: detail}
}

// Unhealthyf is Unhealthy with a formatted detail.
func Unhealthyf(name, format string, args ...any) Health {
	return Unhealthy(name, fmt.Sprintf(format, args...))
}
