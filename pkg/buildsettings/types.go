package buildsettings

import "strings"

// SDK is a platform xcodebuild can build for.
type SDK string

const (
	SDKMacOSX           SDK = "macosx"
	SDKiPhoneOS         SDK = "iphoneos"
	SDKiPhoneSimulator  SDK = "iphonesimulator"
	SDKWatchOS          SDK = "watchos"
	SDKWatchSimulator   SDK = "watchsimulator"
	SDKAppleTVOS        SDK = "appletvos"
	SDKAppleTVSimulator SDK = "appletvsimulator"
	SDKVisionOS         SDK = "xros"
	SDKVisionSimulator  SDK = "xrsimulator"
	SDKDriverKit        SDK = "driverkit"
)

var knownSDKs = []SDK{
	SDKMacOSX,
	SDKiPhoneOS, SDKiPhoneSimulator,
	SDKWatchOS, SDKWatchSimulator,
	SDKAppleTVOS, SDKAppleTVSimulator,
	SDKVisionOS, SDKVisionSimulator,
	SDKDriverKit,
}

// ParseSDK decodes a platform name, ignoring case.
func ParseSDK(name string) (SDK, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, sdk := range knownSDKs {
		if string(sdk) == name {
			return sdk, true
		}
	}
	return "", false
}

// IsSimulator reports whether the SDK targets a simulator.
func (s SDK) IsSimulator() bool {
	return strings.HasSuffix(string(s), "simulator")
}

func (s SDK) String() string {
	return string(s)
}

// ProductType is the value of PRODUCT_TYPE.
type ProductType string

const (
	ProductTypeApplication     ProductType = "com.apple.product-type.application"
	ProductTypeFramework       ProductType = "com.apple.product-type.framework"
	ProductTypeStaticFramework ProductType = "com.apple.product-type.framework.static"
	ProductTypeStaticLibrary   ProductType = "com.apple.product-type.library.static"
	ProductTypeDynamicLibrary  ProductType = "com.apple.product-type.library.dynamic"
	ProductTypeBundle          ProductType = "com.apple.product-type.bundle"
	ProductTypeUnitTestBundle  ProductType = "com.apple.product-type.bundle.unit-test"
	ProductTypeUITestBundle    ProductType = "com.apple.product-type.bundle.ui-testing"
	ProductTypeAppExtension    ProductType = "com.apple.product-type.app-extension"
	ProductTypeTool            ProductType = "com.apple.product-type.tool"
)

var knownProductTypes = map[ProductType]bool{
	ProductTypeApplication:     true,
	ProductTypeFramework:       true,
	ProductTypeStaticFramework: true,
	ProductTypeStaticLibrary:   true,
	ProductTypeDynamicLibrary:  true,
	ProductTypeBundle:          true,
	ProductTypeUnitTestBundle:  true,
	ProductTypeUITestBundle:    true,
	ProductTypeAppExtension:    true,
	ProductTypeTool:            true,
}

// ParseProductType decodes a PRODUCT_TYPE value.
func ParseProductType(value string) (ProductType, bool) {
	pt := ProductType(value)
	return pt, knownProductTypes[pt]
}

// MachOType is the value of MACH_O_TYPE.
type MachOType string

const (
	MachOTypeExecutable    MachOType = "mh_execute"
	MachOTypeDylib         MachOType = "mh_dylib"
	MachOTypeBundle        MachOType = "mh_bundle"
	MachOTypeObject        MachOType = "mh_object"
	MachOTypeStaticLibrary MachOType = "staticlib"
)

// ParseMachOType decodes a MACH_O_TYPE value.
func ParseMachOType(value string) (MachOType, bool) {
	switch mt := MachOType(value); mt {
	case MachOTypeExecutable, MachOTypeDylib, MachOTypeBundle, MachOTypeObject, MachOTypeStaticLibrary:
		return mt, true
	}
	return "", false
}

// FrameworkType classifies how a product is linked.
type FrameworkType string

const (
	FrameworkTypeDynamic FrameworkType = "dynamic"
	FrameworkTypeStatic  FrameworkType = "static"
)

// frameworkTypeFor maps a product and binary type to a framework type.
// It returns nil for combinations that are not frameworks.
func frameworkTypeFor(pt ProductType, mt MachOType) *FrameworkType {
	var ft FrameworkType
	switch {
	case pt == ProductTypeFramework && mt == MachOTypeDylib:
		ft = FrameworkTypeDynamic
	case (pt == ProductTypeFramework || pt == ProductTypeStaticFramework || pt == ProductTypeStaticLibrary) &&
		mt == MachOTypeStaticLibrary:
		ft = FrameworkTypeStatic
	default:
		return nil
	}
	return &ft
}
