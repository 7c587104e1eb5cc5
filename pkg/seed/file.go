package seed

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// File is the declarative description of permissions, roles and subject grants
type File struct {
	Permissions []PermissionSeed `yaml:"permissions"`
	Roles       []RoleSeed       `yaml:"roles"`
	Subjects    []SubjectSeed    `yaml:"subjects"`
}

// PermissionSeed declares a permission. A bare string in the permissions list
// is accepted as a permission with no description.
type PermissionSeed struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// UnmarshalYAML accepts either a mapping or a scalar name
func (p *PermissionSeed) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		p.Name = value.Value
		p.Description = ""
		return nil
	}
	type plain PermissionSeed
	var decoded plain
	if err := value.Decode(&decoded); err != nil {
		return err
	}
	*p = PermissionSeed(decoded)
	return nil
}

// RoleSeed declares a role and the exact set of permissions it holds
type RoleSeed struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Permissions []string `yaml:"permissions,omitempty"`
}

// SubjectSeed declares the exact roles and direct permissions of a subject
type SubjectSeed struct {
	Type        string   `yaml:"type"`
	ID          string   `yaml:"id"`
	Roles       []string `yaml:"roles,omitempty"`
	Permissions []string `yaml:"permissions,omitempty"`
}

// Subject returns the rbac subject this seed describes
func (s SubjectSeed) Subject() rbac.Subject {
	return rbac.Subject{Type: s.Type, ID: s.ID}
}

// Load reads and parses a seed file
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates seed file contents
func Parse(data []byte) (*File, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

// Validate checks names, duplicate declarations and subjects. References
// to permissions and roles that are not declared in the file are allowed;
// they must exist in the store when the file is applied.
func (f *File) Validate() error {
	var problems []string

	perms := make(map[string]bool, len(f.Permissions))
	for i, p := range f.Permissions {
		name := strings.TrimSpace(p.Name)
		switch {
		case name == "":
			problems = append(problems, fmt.Sprintf("permissions[%d]: name is required", i))
		case perms[name]:
			problems = append(problems, fmt.Sprintf("permissions[%d]: duplicate permission %q", i, name))
		}
		perms[name] = true
	}

	roles := make(map[string]bool, len(f.Roles))
	for i, r := range f.Roles {
		name := strings.TrimSpace(r.Name)
		switch {
		case name == "":
			problems = append(problems, fmt.Sprintf("roles[%d]: name is required", i))
		case roles[name]:
			problems = append(problems, fmt.Sprintf("roles[%d]: duplicate role %q", i, name))
		}
		roles[name] = true
	}

	subjects := make(map[rbac.Subject]bool, len(f.Subjects))
	for i, s := range f.Subjects {
		subject := s.Subject()
		if err := subject.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("subjects[%d]: type and id are required", i))
			continue
		}
		if subjects[subject] {
			problems = append(problems, fmt.Sprintf("subjects[%d]: duplicate subject %s", i, subject))
		}
		subjects[subject] = true
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid seed file: %s", strings.Join(problems, "; "))
	}
	return nil
}
