package auth

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Operator is a console user allowed to sign in. Passwords are stored as
// bcrypt hashes only.
type Operator struct {
	Username     string `yaml:"username"`
	Name         string `yaml:"name"`
	PasswordHash string `yaml:"password_hash"`
}

// Credentials verifies operator sign-ins against a fixed roster loaded at
// startup.
type Credentials struct {
	operators map[string]Operator
}

// LoadCredentials reads the operator roster from a YAML file.
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var file struct {
		Operators []Operator `yaml:"operators"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}

	return NewCredentials(file.Operators...)
}

// NewCredentials builds a roster from the given operators.
func NewCredentials(operators ...Operator) (*Credentials, error) {
	roster := make(map[string]Operator, len(operators))
	for _, op := range operators {
		if op.Username == "" || op.PasswordHash == "" {
			return nil, fmt.Errorf("operator entry missing username or password_hash")
		}
		if _, exists := roster[op.Username]; exists {
			return nil, fmt.Errorf("duplicate operator %q", op.Username)
		}
		roster[op.Username] = op
	}
	return &Credentials{operators: roster}, nil
}

// Verify checks a username/password pair, returning the operator on success.
func (c *Credentials) Verify(username, password string) (Operator, bool) {
	op, ok := c.operators[username]
	if !ok {
		return Operator{}, false
	}
	if bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)) != nil {
		return Operator{}, false
	}
	return op, true
}
