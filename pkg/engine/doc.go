// Package engine ties settings retrieval to the settings cache.
//
// A Service answers Load from the cache when it holds unexpired settings for
// the same project parameters and action, and otherwise runs the Loader
// (normally a *buildsettings.Retriever) and caches the result:
//
//	store, err := stores.OpenSQLiteStore(ctx, stores.Config{Path: cfg.CachePath()})
//	if err != nil {
//	    return err
//	}
//	svc := engine.NewService(retriever, engine.WithStore(store, cfg.Cache.TTL))
//	all, err := svc.Load(ctx, engine.Request{Args: args, Action: xcodebuild.ActionArchive})
//
// A Watcher keeps the cache honest. It watches the directories holding
// tracked workspaces and projects and, after a quiet period, drops cached
// settings for a project when its project.pbxproj, contents.xcworkspacedata,
// schemes or xcconfig files change. With Refresh set it reloads the tracked
// requests straight away.
package engine
