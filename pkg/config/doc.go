// Package config loads the xcsettings configuration file.
//
// Configuration is read from YAML, by default .xcsettings.yaml in the working
// directory, over the values returned by Default. A missing default file is
// not an error; a missing file passed explicitly is.
//
// # Example
//
//	xcodebuild:
//	  path: /Applications/Xcode.app/Contents/Developer/usr/bin/xcodebuild
//	  timeout: 90s
//	  retries: 3
//	  workaround_action: archive
//
//	remote:
//	  enabled: true
//	  host: mac-builder.internal
//	  user: ci
//	  private_key_path: ~/.ssh/id_ed25519
//
//	cache:
//	  dir: ~/Library/Caches/xcsettings
//	  ttl: 12h
//
//	policy:
//	  dirs: [./policies]
//	  fail_on: warning
//
//	telemetry:
//	  logging:
//	    level: info
//
// # Environment
//
// These variables override the file:
//
//	XCSETTINGS_XCODEBUILD   xcodebuild.path
//	XCSETTINGS_TIMEOUT      xcodebuild.timeout, a duration or bare seconds
//	XCSETTINGS_CACHE_DIR    cache.dir, and enables the cache
//	XCSETTINGS_LOG_LEVEL    telemetry.logging.level
//
// Load validates the result with go-playground/validator struct tags plus
// the cross-field checks in Validate.
package config
