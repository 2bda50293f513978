package buildsettings

import (
	"fmt"
	"slices"
)

// namedQueries maps query names used by the CLI and scripts to the typed
// queries. Results are plain values: strings, bools, string slices or nil.
var namedQueries = map[string]func(*BuildSettings) (any, error){
	"sdks": func(b *BuildSettings) (any, error) {
		sdks, err := b.SDKs()
		if err != nil {
			return nil, err
		}
		names := make([]string, len(sdks))
		for i, sdk := range sdks {
			names[i] = sdk.String()
		}
		return names, nil
	},
	"product-type": func(b *BuildSettings) (any, error) {
		pt, err := b.ProductType()
		return string(pt), err
	},
	"macho-type": func(b *BuildSettings) (any, error) {
		mt, err := b.MachOType()
		return string(mt), err
	},
	"framework-type": func(b *BuildSettings) (any, error) {
		ft, err := b.FrameworkType()
		if err != nil || ft == nil {
			return nil, err
		}
		return string(*ft), nil
	},
	"built-products-dir":    stringQuery((*BuildSettings).BuiltProductsDir),
	"archive-products-path": stringQuery((*BuildSettings).ArchiveIntermediatesBuildProductsPath),
	"executable-path":       stringQuery((*BuildSettings).ExecutablePath),
	"executable-url":        stringQuery((*BuildSettings).ExecutableURL),
	"executable-name":       stringQuery((*BuildSettings).ExecutableName),
	"wrapper-name":          stringQuery((*BuildSettings).WrapperName),
	"wrapper-url":           stringQuery((*BuildSettings).WrapperURL),
	"xcframework-name":      stringQuery((*BuildSettings).XCFrameworkWrapperName),
	"project-path":          stringQuery((*BuildSettings).ProjectPath),
	"target-build-dir":      stringQuery((*BuildSettings).TargetBuildDir),
	"product-name":          stringQuery((*BuildSettings).ProductName),
	"module-name":           stringQuery((*BuildSettings).ProductModuleName),
	"bitcode":               boolQuery((*BuildSettings).BitcodeEnabled),
	"adhoc-signing":         boolQuery((*BuildSettings).AdHocCodeSigningAllowed),
	"uikit-for-mac":         boolQuery((*BuildSettings).SupportsUIKitForMac),
	"modules-path": func(b *BuildSettings) (any, error) {
		p, err := b.RelativeModulesPath()
		if err != nil || p == nil {
			return nil, err
		}
		return *p, nil
	},
}

func stringQuery(q func(*BuildSettings) (string, error)) func(*BuildSettings) (any, error) {
	return func(b *BuildSettings) (any, error) {
		return q(b)
	}
}

func boolQuery(q func(*BuildSettings) (bool, error)) func(*BuildSettings) (any, error) {
	return func(b *BuildSettings) (any, error) {
		return q(b)
	}
}

// QueryNames lists the names accepted by Query, sorted.
func QueryNames() []string {
	names := make([]string, 0, len(namedQueries))
	for name := range namedQueries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Query runs the derived query called name.
func (b *BuildSettings) Query(name string) (any, error) {
	q, ok := namedQueries[name]
	if !ok {
		return nil, fmt.Errorf("unknown query %q", name)
	}
	return q(b)
}
