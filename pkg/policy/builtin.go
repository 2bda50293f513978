package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		productNamePolicy(),
		platformsPolicy(),
		staticFrameworkModulePolicy(),
		bitcodePolicy(),
		releaseActiveArchPolicy(),
		adhocArchivePolicy(),
	}
}

// productNamePolicy requires PRODUCT_NAME, which every product path query
// depends on.
func productNamePolicy() Policy {
	return Policy{
		Name:        "product-name",
		Description: "Targets must define a non-empty PRODUCT_NAME",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"products"},
		Rego: `package xcsettings.product_name

import rego.v1

deny contains violation if {
	not input.settings.PRODUCT_NAME
	violation := {
		"message": sprintf("target %s does not define PRODUCT_NAME", [input.target]),
		"key": "PRODUCT_NAME",
	}
}

deny contains violation if {
	input.settings.PRODUCT_NAME == ""
	violation := {
		"message": sprintf("target %s has an empty PRODUCT_NAME", [input.target]),
		"key": "PRODUCT_NAME",
	}
}
`,
	}
}

// platformsPolicy flags targets whose SDKs cannot be determined.
func platformsPolicy() Policy {
	return Policy{
		Name:        "platforms",
		Description: "Targets must declare SUPPORTED_PLATFORMS or PLATFORM_NAME",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"sdks"},
		Rego: `package xcsettings.platforms

import rego.v1

deny contains violation if {
	not input.settings.SUPPORTED_PLATFORMS
	not input.settings.PLATFORM_NAME
	violation := {
		"message": "neither SUPPORTED_PLATFORMS nor PLATFORM_NAME is set",
		"key": "SUPPORTED_PLATFORMS",
	}
}
`,
	}
}

// staticFrameworkModulePolicy requires a module name on static frameworks so
// the modules directory can be located when packaging an xcframework.
func staticFrameworkModulePolicy() Policy {
	return Policy{
		Name:        "static-framework-module",
		Description: "Static frameworks must define PRODUCT_MODULE_NAME",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"frameworks", "products"},
		Rego: `package xcsettings.static_framework_module

import rego.v1

deny contains violation if {
	input.settings.PRODUCT_TYPE == "com.apple.product-type.framework"
	input.settings.MACH_O_TYPE == "staticlib"
	not input.settings.PRODUCT_MODULE_NAME
	violation := {
		"message": sprintf("static framework %s does not define PRODUCT_MODULE_NAME", [input.target]),
		"key": "PRODUCT_MODULE_NAME",
	}
}
`,
	}
}

// bitcodePolicy warns about bitcode, which Xcode 14 deprecated.
func bitcodePolicy() Policy {
	return Policy{
		Name:        "bitcode",
		Description: "Bitcode is deprecated and should be disabled",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"deprecations"},
		Rego: `package xcsettings.bitcode

import rego.v1

deny contains violation if {
	input.settings.ENABLE_BITCODE == "YES"
	violation := {
		"message": "ENABLE_BITCODE is YES; bitcode is deprecated",
		"key": "ENABLE_BITCODE",
	}
}
`,
	}
}

// releaseActiveArchPolicy warns when a Release build only builds the active
// architecture.
func releaseActiveArchPolicy() Policy {
	return Policy{
		Name:        "release-active-arch",
		Description: "Release configurations should build every architecture",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"architectures"},
		Rego: `package xcsettings.release_active_arch

import rego.v1

deny contains violation if {
	input.settings.CONFIGURATION == "Release"
	input.settings.ONLY_ACTIVE_ARCH == "YES"
	violation := {
		"message": "ONLY_ACTIVE_ARCH is YES in the Release configuration",
		"key": "ONLY_ACTIVE_ARCH",
	}
}
`,
	}
}

// adhocArchivePolicy notes archives that are ad-hoc signed.
func adhocArchivePolicy() Policy {
	return Policy{
		Name:        "adhoc-archive",
		Description: "Reports archives that allow ad-hoc code signing",
		Severity:    SeverityInfo,
		Enabled:     true,
		Tags:        []string{"signing"},
		Rego: `package xcsettings.adhoc_archive

import rego.v1

deny contains msg if {
	input.action == "archive"
	input.settings.AD_HOC_CODE_SIGNING_ALLOWED == "YES"
	msg := sprintf("archive of %s allows ad-hoc code signing", [input.target])
}
`,
	}
}
