// Package app wires the license diagnostics service together: it builds
// the acquirer from configuration, sets up the chi router with its
// middleware chain and runs the HTTP server until the context ends.
//
// # Usage
//
//	application, err := app.NewApplication(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return application.Run(ctx)
//
// Run shuts the server down gracefully once ctx is cancelled, within the
// configured shutdown timeout. The package never calls os.Exit.
package app
