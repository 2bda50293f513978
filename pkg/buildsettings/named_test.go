package buildsettings

import (
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xcsettings/xcsettings/pkg/xcodebuild"
)

func TestQuery(t *testing.T) {
	s := settingsFor(xcodebuild.ActionBuild, map[string]string{
		"SUPPORTED_PLATFORMS":  "iphoneos iphonesimulator",
		"PRODUCT_TYPE":         string(ProductTypeFramework),
		"MACH_O_TYPE":          "staticlib",
		"BUILT_PRODUCTS_DIR":   "/p",
		"WRAPPER_NAME":         "Kit.framework",
		"ENABLE_BITCODE":       "YES",
		"CONTENTS_FOLDER_PATH": "Kit.framework",
	})

	tests := []struct {
		name string
		want any
	}{
		{"sdks", []string{"iphoneos", "iphonesimulator"}},
		{"framework-type", "static"},
		{"wrapper-url", "/p/Kit.framework"},
		{"xcframework-name", "Kit.xcframework"},
		{"bitcode", true},
		{"modules-path", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Query(tt.name)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("query mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, err := s.Query("executable-url"); !IsMissingSetting(err) {
		t.Errorf("expected missing EXECUTABLE_PATH, got %v", err)
	}
	if _, err := s.Query("nonsense"); err == nil {
		t.Error("expected error for unknown query")
	}
}

func TestQueryNames(t *testing.T) {
	names := QueryNames()
	if !slices.IsSorted(names) {
		t.Error("expected sorted names")
	}
	for _, name := range []string{"sdks", "built-products-dir", "bitcode", "modules-path"} {
		if !slices.Contains(names, name) {
			t.Errorf("expected %s in %v", name, names)
		}
	}
}
