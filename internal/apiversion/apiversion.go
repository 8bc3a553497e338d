// Package apiversion tags the semantic version of the five-operation
// tlsregion ABI (create/destroy/read/write/clone). Embedders can pin
// a constraint through the config file's required_api_version field;
// registry.New checks it once at construction.
package apiversion

import (
	semver "github.com/Masterminds/semver/v3"
)

// Current is the semantic version of the ABI this build implements.
var Current = semver.MustParse("1.0.0")

// Compatible reports whether a caller compiled against the given
// constraint string (e.g. "^1.0.0", ">=1.0.0, <2.0.0") can use this
// build's ABI.
func Compatible(requested string) (bool, error) {
	c, err := semver.NewConstraint(requested)
	if err != nil {
		return false, err
	}

	return c.Check(Current), nil
}
