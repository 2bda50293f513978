// Package script evaluates Starlark programs against a target's build
// settings.
//
// A program sees these predeclared names:
//
//	settings   frozen dict of every build setting
//	target     target name
//	action     requested build action, "" when none
//	scheme     scheme the settings were read for
//	lookup     lookup(key, default=None) returns a setting or fails when absent
//	has        has(key) reports whether a setting exists
//	query      query(name) runs a derived query such as "sdks" or "wrapper-url"
//	struct     starlarkstruct constructor
//
// Globals the program defines, other than functions and names starting with
// an underscore, are returned as the Result output:
//
//	is_static = query("framework-type") == "static"
//	dest = query("built-products-dir") + "/" + lookup("WRAPPER_NAME")
//
// Programs have no filesystem or network access and are cancelled when the
// evaluator timeout passes.
package script
