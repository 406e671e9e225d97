package compiler

import (
	"fmt"
	"strings"

	"github.com/migadu/svbin/ext/envelope"
	"github.com/migadu/svbin/ext/fileinto"
	"github.com/migadu/svbin/ext/numeric"
	"github.com/migadu/svbin/ext/regex"
	"github.com/migadu/svbin/sieve"
)

// CoreCapabilities are always available and need no registered extension.
// Scripts may still name them in require.
var CoreCapabilities = []string{
	"comparator-i;octet",
	"comparator-i;ascii-casemap",
}

// SupportedExtensions lists every extension this module ships.
var SupportedExtensions = []string{
	fileinto.Name, // RFC 5228
	envelope.Name, // RFC 5228
	numeric.Name,  // RFC 4790
	regex.Name,    // draft-murchison-sieve-regex
}

// DefaultRegistry returns a registry holding every shipped extension.
func DefaultRegistry() (*sieve.Registry, error) {
	return sieve.NewRegistry(
		fileinto.Extension,
		envelope.Extension,
		numeric.Extension,
		regex.Extension,
	)
}

// ValidateExtensions checks that every name is registered in reg.
// Returns an error listing any that are not.
func ValidateExtensions(reg *sieve.Registry, extensions []string) error {
	var invalid []string
	for _, name := range extensions {
		if _, ok := reg.Extension(name); !ok {
			invalid = append(invalid, name)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid SIEVE extensions: %s (supported: %s)",
			strings.Join(invalid, ", "),
			strings.Join(reg.Extensions(), ", "))
	}
	return nil
}

func isCoreCapability(name string) bool {
	for _, c := range CoreCapabilities {
		if c == name {
			return true
		}
	}
	return false
}
