// Package config provides configuration management for the markflow server.
//
// Configuration is loaded from environment variables using the env package.
// All configuration values have sensible defaults for development use; the
// only value without one is LLM_API_KEY, required unless LLM_PROVIDER=none.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("HTTP server will listen on %s\n", cfg.GetHTTPAddr())
package config
