// Package buildsettings reads the build settings xcodebuild computes for
// each target of a project or scheme and answers typed questions about them.
//
// A Retriever runs `xcodebuild -showBuildSettings` through an
// xcodebuild.Runner under a Policy (per-attempt timeout, retries and a
// substitute action that keeps xcodebuild from hanging). The output is split
// into one BuildSettings value per target by Parse.
//
//	r := buildsettings.NewRetriever(xcodebuild.NewLocalRunner())
//	for settings, err := range r.Load(ctx, args, xcodebuild.ActionArchive) {
//	    if err != nil {
//	        return err
//	    }
//	    dir, err := settings.BuiltProductsDir()
//	    ...
//	}
//
// Lookups of absent keys fail with a MISSING_BUILD_SETTING *Error and values
// outside a known enumeration fail with UNRECOGNIZED_VALUE. Use
// IsMissingSetting, IsUnrecognizedValue, IsTimeout and errors.Is against the
// Err* sentinels to tell them apart.
package buildsettings
