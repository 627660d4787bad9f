/*
Package httpserver implements the HTTP shell shared by the vault server and
the payment worker.

It owns everything around the API routes: request logging, the Prometheus
metrics listener, optional pprof, graceful shutdown, and the operational
endpoints load balancers rely on.

# Endpoints

  - GET /livez - Liveness check
  - GET /readyz - Readiness check
  - GET /drain - Gracefully mark server as not ready
  - GET /undrain - Mark server as ready

API routes are installed by the caller:

	server, err := httpserver.New(cfg, func(r chi.Router) {
		handler.RegisterRoutes(r, gate.Middleware())
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	server.RunInBackground()
	defer server.Shutdown()
*/
package httpserver
