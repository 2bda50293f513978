// Package policy checks build settings against Open Policy Agent (OPA)
// policies written in Rego.
//
// Each policy module defines a deny set. The engine evaluates it once per
// target with this input document:
//
//	{
//	  "target": "Kit",
//	  "action": "archive",
//	  "scheme": "App",
//	  "configuration": "Release",
//	  "project": "/src/App.xcworkspace",
//	  "settings": {"PRODUCT_NAME": "Kit", ...}
//	}
//
// A deny element is either a message string or an object:
//
//	package custom.team
//
//	import rego.v1
//
//	deny contains v if {
//		not input.settings.DEVELOPMENT_TEAM
//		v := {"message": "DEVELOPMENT_TEAM is not set", "severity": "error", "key": "DEVELOPMENT_TEAM"}
//	}
//
// Violations take the policy's severity unless the object names one. A
// Result fails when any violation reaches the engine's fail-on severity.
//
// # Usage
//
//	eng, err := policy.NewEngine(logger, policy.WithFailOn(policy.SeverityWarning))
//	if err != nil {
//	    return err
//	}
//	if _, err := eng.LoadPolicies(ctx, []string{".xcsettings/policies"}); err != nil {
//	    return err
//	}
//	result, err := eng.EvaluateAll(ctx, targets)
//
// Policy files are .rego modules or .json Policy documents. A .rego file's
// leading comment block becomes the description, and a "# severity: error"
// line sets the default severity. Loader.Watch reloads them on change.
//
// Built-in policies cover PRODUCT_NAME, platform declarations, static
// framework module names, bitcode, ONLY_ACTIVE_ARCH in Release and ad-hoc
// signed archives. Disable any of them with Engine.DisablePolicy.
package policy
