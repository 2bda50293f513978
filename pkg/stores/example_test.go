package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/xcsettings/xcsettings/pkg/buildsettings"
	"github.com/xcsettings/xcsettings/pkg/stores"
	"github.com/xcsettings/xcsettings/pkg/xcodebuild"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a new SQLite store.
func ExampleNewSQLiteStore() {
	store, err := stores.NewSQLiteStore(stores.Config{
		Path: ":memory:", // Use in-memory database for example
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}

	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	defer store.Close()

	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_PutSettings demonstrates caching settings for an invocation.
func ExampleSQLiteStore_PutSettings() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	args := xcodebuild.Arguments{
		Project: xcodebuild.ProjectLocator{Kind: xcodebuild.ProjectKindProject, Path: "/src/Kit/Kit.xcodeproj"},
		Scheme:  "Kit",
	}
	settings := []*buildsettings.BuildSettings{
		buildsettings.New("Kit", map[string]string{"PRODUCT_NAME": "Kit"}, args, xcodebuild.ActionBuild),
	}

	if err := store.PutSettings(ctx, args, xcodebuild.ActionBuild, settings, time.Hour); err != nil {
		log.Fatal(err)
	}

	cached, err := store.GetSettings(ctx, args, xcodebuild.ActionBuild)
	if err != nil {
		log.Fatal(err)
	}

	name, _ := cached[0].ProductName()
	fmt.Printf("Cached %d target: %s\n", len(cached), name)
	// Output: Cached 1 target: Kit
}
