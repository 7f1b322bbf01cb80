// Package config provides configuration management for licensekit.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. A YAML configuration file
//	3. Default values (lowest priority)
//
// The file is LICENSEKIT_CONFIG_FILE when set, otherwise the first of
// licensekit.yaml and configs/licensekit.yaml that exists.
//
// # Environment Variables
//
// All environment variables follow the pattern LICENSEKIT_<SECTION>_<FIELD>:
//
//	LICENSEKIT_PRODUCT_NAMES=Acme,AcmePro
//	LICENSEKIT_LOCATOR_STRATEGIES=external,user,system
//	LICENSEKIT_LOCATOR_PATHS=/opt/acme/acme.lic
//	LICENSEKIT_VERIFY_PUBLIC_KEY_FILE=/etc/acme/license.pub
//	LICENSEKIT_LOGGING_LEVEL=debug
//
// List values are comma separated.
//
// # Validation
//
// Load validates the merged configuration with go-playground/validator.
// Locator strategy names must be known to the locate package and product
// and vendor names must be usable as file names.
package config
