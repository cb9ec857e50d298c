package memory

import (
	"fmt"
	"os"

	"clubledger-backend/internal/domain"

	"gopkg.in/yaml.v3"
)

// Seed is the fixture format for running the server without a database.
type Seed struct {
	Users []struct {
		ID        string      `yaml:"id"`
		Email     string      `yaml:"email"`
		FirstName string      `yaml:"first_name"`
		LastName  string      `yaml:"last_name"`
		Role      domain.Role `yaml:"role"`
	} `yaml:"users"`
	Children []struct {
		ID        string `yaml:"id"`
		ParentID  string `yaml:"parent_id"`
		TrainerID string `yaml:"trainer_id"`
		FirstName string `yaml:"first_name"`
		LastName  string `yaml:"last_name"`
		Balance   int    `yaml:"balance"`
	} `yaml:"children"`
}

// LoadSeed reads a YAML fixture and inserts its users and children.
func (s *Store) LoadSeed(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}

	for _, u := range seed.Users {
		if !u.Role.Valid() {
			return fmt.Errorf("seed user %s: unknown role %q", u.ID, u.Role)
		}
		s.AddUser(domain.User{ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName, Role: u.Role})
	}
	for _, c := range seed.Children {
		child := domain.Child{ID: c.ID, ParentID: c.ParentID, FirstName: c.FirstName, LastName: c.LastName, Balance: c.Balance}
		if c.TrainerID != "" {
			trainerID := c.TrainerID
			child.TrainerID = &trainerID
		}
		s.AddChild(child)
	}
	return nil
}
