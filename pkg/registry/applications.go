package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/itsneelabh/eureka/pkg/instance"
)

// Applications is the decoded form of a QueryAll payload
type Applications struct {
	VersionsDelta string                 `json:"versions__delta,omitempty"`
	AppsHashCode  string                 `json:"apps__hashcode,omitempty"`
	Application   oneOrMany[Application] `json:"application"`
}

// Application is the decoded form of a QueryByApp payload
type Application struct {
	Name     string                         `json:"name"`
	Instance oneOrMany[instance.Descriptor] `json:"instance"`
}

// Find returns the application with the given name
func (a *Applications) Find(name string) (*Application, bool) {
	for i := range a.Application {
		if a.Application[i].Name == name {
			return &a.Application[i], true
		}
	}
	return nil, false
}

// Find returns the instance with the given ID
func (a *Application) Find(instanceID string) (*instance.Descriptor, bool) {
	for i := range a.Instance {
		if a.Instance[i].InstanceID == instanceID {
			return &a.Instance[i], true
		}
	}
	return nil, false
}

// DecodeApplications decodes a {"applications": {...}} payload
func DecodeApplications(raw json.RawMessage) (*Applications, error) {
	var envelope struct {
		Applications *Applications `json:"applications"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode applications: %w", err)
	}
	if envelope.Applications == nil {
		return nil, fmt.Errorf("decode applications: missing \"applications\" key")
	}
	return envelope.Applications, nil
}

// DecodeApplication decodes a {"application": {...}} payload
func DecodeApplication(raw json.RawMessage) (*Application, error) {
	var envelope struct {
		Application *Application `json:"application"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode application: %w", err)
	}
	if envelope.Application == nil {
		return nil, fmt.Errorf("decode application: missing \"application\" key")
	}
	return envelope.Application, nil
}

// DecodeInstance decodes a {"instance": {...}} payload
func DecodeInstance(raw json.RawMessage) (*instance.Descriptor, error) {
	var envelope instance.Registration
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode instance: %w", err)
	}
	if envelope.Instance == nil {
		return nil, fmt.Errorf("decode instance: missing \"instance\" key")
	}
	return envelope.Instance, nil
}

// oneOrMany decodes either a JSON array or a single object. Registries
// serialize one-element lists as a bare object.
type oneOrMany[T any] []T

func (o *oneOrMany[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*o = nil
		return nil
	}
	if trimmed[0] == '[' {
		var list []T
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		*o = list
		return nil
	}
	var single T
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return err
	}
	*o = []T{single}
	return nil
}
