package core

import (
	"fmt"
	"regexp"
	"sync"
)

// identifierPattern accepts the URN/URI-style strings systems, FoIs and
// output names use in practice (e.g. "urn:my-org:sensor:001", "temp").
// Must start with a letter, and contain only letters, digits, and the
// punctuation common to URNs and dotted names.
var identifierPattern = regexp.MustCompile(`^[\p{L}][\p{L}\p{N}_:\.\-/]*$`)

// Validator provides cached validation for the identifier strings used
// throughout the registry (system UIDs, output names, FoI UIDs).
type Validator struct {
	mu    sync.RWMutex
	cache map[string]error // caches validation results to avoid repeated regex matching
}

// NewValidator creates a new validator with an initialized cache.
func NewValidator() *Validator {
	return &Validator{
		cache: make(map[string]error),
	}
}

func (v *Validator) validateIdentifier(field, cacheKeyPrefix, value string) error {
	v.mu.RLock()
	err, found := v.cache[cacheKeyPrefix+value]
	v.mu.RUnlock()
	if found {
		return err
	}

	var validationErr error
	if value == "" {
		validationErr = &ValidationError{Message: "cannot be empty", Field: field, Value: value}
	} else if !identifierPattern.MatchString(value) {
		validationErr = &ValidationError{Message: fmt.Sprintf("does not match pattern '%s'", identifierPattern.String()), Field: field, Value: value}
	}

	v.mu.Lock()
	v.cache[cacheKeyPrefix+value] = validationErr
	v.mu.Unlock()

	return validationErr
}

// ValidateSystemUID checks a System's globally unique string id.
func (v *Validator) ValidateSystemUID(uid string) error {
	return v.validateIdentifier("systemUid", "system:", uid)
}

// ValidateOutputName checks a DataStream's output name, unique within its
// owning system.
func (v *Validator) ValidateOutputName(name string) error {
	return v.validateIdentifier("outputName", "output:", name)
}

// ValidateFoiUID checks a FeatureOfInterest's globally unique string id.
func (v *Validator) ValidateFoiUID(uid string) error {
	return v.validateIdentifier("foiUid", "foi:", uid)
}
