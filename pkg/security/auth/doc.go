/*
Package auth provides API key authentication for the administrative routes
of the rate limiter server.

# Basic Usage

	validator := auth.NewKeyValidator([]*auth.KeyInfo{
		{Name: "ops", Key: "rl-admin-1234567890", Enabled: true},
	})

	middleware := auth.NewKeyMiddleware(validator, nil, logger)
	mux.Handle("POST /v1/reset", middleware.Handle(resetHandler))

Keys are read from the Authorization header (Bearer scheme) and then from
X-API-Key. Requests without a valid key get 401 Unauthorized:

	{"error": {"message": "invalid API key", "type": "authentication_error"}}

# Reloading Keys

Replace swaps the key set atomically, so keys can follow configuration
reloads without restarting the server:

	validator.Replace(newKeys)

The authenticated key is available to handlers:

	if info, ok := auth.KeyInfoFromContext(r.Context()); ok {
		logger.Info("limiter reset", "key_name", info.Name)
	}
*/
package auth
