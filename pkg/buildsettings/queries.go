package buildsettings

import (
	"path"
	"strings"

	"github.com/xcsettings/xcsettings/pkg/xcodebuild"
)

// Paths reported by xcodebuild are POSIX paths on the build host, so they
// are joined with package path rather than path/filepath.

// SDKs returns the platforms the target supports. SUPPORTED_PLATFORMS is
// split on spaces and every name must be known; without it, PLATFORM_NAME is
// the single SDK.
func (b *BuildSettings) SDKs() ([]SDK, error) {
	if supported, ok := b.settings["SUPPORTED_PLATFORMS"]; ok {
		sdks := []SDK{}
		for _, name := range strings.Fields(supported) {
			sdk, ok := ParseSDK(name)
			if !ok {
				return nil, unrecognizedValueError("SUPPORTED_PLATFORMS", name)
			}
			sdks = append(sdks, sdk)
		}
		return sdks, nil
	}

	name, err := b.Lookup("PLATFORM_NAME")
	if err != nil {
		return nil, err
	}
	sdk, ok := ParseSDK(name)
	if !ok {
		return nil, unrecognizedValueError("PLATFORM_NAME", name)
	}
	return []SDK{sdk}, nil
}

// ProductType decodes PRODUCT_TYPE.
func (b *BuildSettings) ProductType() (ProductType, error) {
	value, err := b.Lookup("PRODUCT_TYPE")
	if err != nil {
		return "", err
	}
	pt, ok := ParseProductType(value)
	if !ok {
		return "", unrecognizedValueError("PRODUCT_TYPE", value)
	}
	return pt, nil
}

// MachOType decodes MACH_O_TYPE.
func (b *BuildSettings) MachOType() (MachOType, error) {
	value, err := b.Lookup("MACH_O_TYPE")
	if err != nil {
		return "", err
	}
	mt, ok := ParseMachOType(value)
	if !ok {
		return "", unrecognizedValueError("MACH_O_TYPE", value)
	}
	return mt, nil
}

// FrameworkType classifies the product as a dynamic or static framework.
// It returns nil without error when the product is not a framework.
func (b *BuildSettings) FrameworkType() (*FrameworkType, error) {
	pt, err := b.ProductType()
	if err != nil {
		return nil, err
	}
	mt, err := b.MachOType()
	if err != nil {
		return nil, err
	}
	return frameworkTypeFor(pt, mt), nil
}

// BuiltProductsDir is where the product lands for the settings' action.
func (b *BuildSettings) BuiltProductsDir() (string, error) {
	switch b.Action {
	case xcodebuild.ActionArchive:
		objRoot, err := b.Lookup("OBJROOT")
		if err != nil {
			return "", err
		}
		intermediates, err := b.ArchiveIntermediatesBuildProductsPath()
		if err != nil {
			return "", err
		}
		return path.Join(objRoot, intermediates), nil
	case xcodebuild.ActionNone, xcodebuild.ActionBuild, xcodebuild.ActionAnalyze, xcodebuild.ActionTest,
		xcodebuild.ActionInstallSource, xcodebuild.ActionInstall, xcodebuild.ActionClean:
		return b.Lookup("BUILT_PRODUCTS_DIR")
	default:
		return b.Lookup("BUILT_PRODUCTS_DIR")
	}
}

// ArchiveIntermediatesBuildProductsPath is the products path, relative to
// OBJROOT, that an archive build uses.
func (b *BuildSettings) ArchiveIntermediatesBuildProductsPath() (string, error) {
	name := b.Arguments.Scheme
	if name == "" {
		targetName, err := b.Lookup("TARGET_NAME")
		if err != nil {
			return "", err
		}
		name = targetName
	}
	base := path.Join("ArchiveIntermediates", name, "BuildProductsPath")

	// CocoaPods-generated projects nest products below BUILD_DIR, so keep
	// whatever BUILT_PRODUCTS_DIR adds beyond it.
	buildDir, hasBuildDir := b.settings["BUILD_DIR"]
	builtProductsDir, hasBuiltProductsDir := b.settings["BUILT_PRODUCTS_DIR"]
	if hasBuildDir && hasBuiltProductsDir && strings.HasPrefix(builtProductsDir, buildDir) {
		return path.Join(base, strings.TrimPrefix(builtProductsDir, buildDir)), nil
	}

	configuration, err := b.Lookup("CONFIGURATION")
	if err != nil {
		return "", err
	}
	return path.Join(base, configuration+b.settings["EFFECTIVE_PLATFORM_NAME"]), nil
}

// ExecutablePath is EXECUTABLE_PATH, relative to the products directory.
func (b *BuildSettings) ExecutablePath() (string, error) {
	return b.Lookup("EXECUTABLE_PATH")
}

// ExecutableURL is the absolute path of the built executable.
func (b *BuildSettings) ExecutableURL() (string, error) {
	return b.inBuiltProductsDir(b.ExecutablePath)
}

// ExecutableName is EXECUTABLE_NAME.
func (b *BuildSettings) ExecutableName() (string, error) {
	return b.Lookup("EXECUTABLE_NAME")
}

// WrapperName is the bundle name, e.g. "Kit.framework".
func (b *BuildSettings) WrapperName() (string, error) {
	return b.Lookup("WRAPPER_NAME")
}

// WrapperURL is the absolute path of the built bundle.
func (b *BuildSettings) WrapperURL() (string, error) {
	return b.inBuiltProductsDir(b.WrapperName)
}

// XCFrameworkWrapperName is the wrapper name with a ".framework" suffix
// replaced by ".xcframework". Other names are returned unchanged.
func (b *BuildSettings) XCFrameworkWrapperName() (string, error) {
	name, err := b.WrapperName()
	if err != nil {
		return "", err
	}
	if stem, ok := strings.CutSuffix(name, ".framework"); ok {
		return stem + ".xcframework", nil
	}
	return name, nil
}

// BitcodeEnabled reports ENABLE_BITCODE.
func (b *BuildSettings) BitcodeEnabled() (bool, error) {
	return b.boolSetting("ENABLE_BITCODE")
}

// AdHocCodeSigningAllowed reports AD_HOC_CODE_SIGNING_ALLOWED.
func (b *BuildSettings) AdHocCodeSigningAllowed() (bool, error) {
	return b.boolSetting("AD_HOC_CODE_SIGNING_ALLOWED")
}

// SupportsUIKitForMac reports SUPPORTS_UIKITFORMAC.
func (b *BuildSettings) SupportsUIKitForMac() (bool, error) {
	return b.boolSetting("SUPPORTS_UIKITFORMAC")
}

// ProjectPath is PROJECT_FILE_PATH.
func (b *BuildSettings) ProjectPath() (string, error) {
	return b.Lookup("PROJECT_FILE_PATH")
}

// TargetBuildDir is TARGET_BUILD_DIR.
func (b *BuildSettings) TargetBuildDir() (string, error) {
	return b.Lookup("TARGET_BUILD_DIR")
}

// ProductName is PRODUCT_NAME.
func (b *BuildSettings) ProductName() (string, error) {
	return b.Lookup("PRODUCT_NAME")
}

// ProductModuleName is PRODUCT_MODULE_NAME.
func (b *BuildSettings) ProductModuleName() (string, error) {
	return b.Lookup("PRODUCT_MODULE_NAME")
}

// ContentsFolderPath is CONTENTS_FOLDER_PATH.
func (b *BuildSettings) ContentsFolderPath() (string, error) {
	return b.Lookup("CONTENTS_FOLDER_PATH")
}

// RelativeModulesPath is the Swift module directory inside the product,
// relative to the products directory. It is nil when the target has no
// module name.
func (b *BuildSettings) RelativeModulesPath() (*string, error) {
	moduleName, ok := b.settings["PRODUCT_MODULE_NAME"]
	if !ok {
		return nil, nil
	}
	contents, err := b.ContentsFolderPath()
	if err != nil {
		return nil, err
	}
	p := path.Join(contents, "Modules", moduleName+".swiftmodule")
	return &p, nil
}

// ProductDestinationPath returns dir/Static for static frameworks and dir
// otherwise, including when the framework type cannot be determined.
func (b *BuildSettings) ProductDestinationPath(dir string) string {
	ft, err := b.FrameworkType()
	if err != nil || ft == nil || *ft != FrameworkTypeStatic {
		return dir
	}
	return path.Join(dir, "Static")
}

func (b *BuildSettings) inBuiltProductsDir(rel func() (string, error)) (string, error) {
	dir, err := b.BuiltProductsDir()
	if err != nil {
		return "", err
	}
	name, err := rel()
	if err != nil {
		return "", err
	}
	return path.Join(dir, name), nil
}
