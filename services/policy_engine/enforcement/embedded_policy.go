/*
This file serves as the bridge between the build system and the runtime logic.
It utilizes the Go embed package to bake the sensitive_data_patterns.yaml file
directly into the compiled binary. This ensures that the policy rules are
immutable at runtime and travel with the executable.
*/

package enforcement

import (
	_ "embed"
)

// SensitiveDataPatterns holds the raw byte content of the
// 'sensitive_data_patterns.yaml' file.
//
// This variable is populated at compile-time using the Go 'embed' directive.
// By baking the YAML directly into the binary, we ensure that the safety
// policies are immutable and cannot be tampered with on the host filesystem
// without recompiling the application.
//
// Usage:
//
//	// Pass these bytes directly to yaml.Unmarshal
//	err := yaml.Unmarshal(enforcement.SensitiveDataPatterns, &targetStruct)
//
//go:embed sensitive_data_patterns.yaml
var SensitiveDataPatterns []byte
