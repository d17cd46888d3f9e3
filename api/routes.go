package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	rh "github.com/coreybb/qcdash/route-handlers"
	"github.com/coreybb/qcdash/scheduler"
	"github.com/coreybb/qcdash/webutil"
)

const (
	apiBasePath        = "/api"
	deliveriesBasePath = "/deliveries"
	jobsBasePath       = "/jobs"
	checksBasePath     = "/checks"
	productsBasePath   = "/products"
	schedulerBasePath  = "/scheduler"
)

const (
	actionsSubPath     = "/actions"
	submitSubPath      = "/submit"
	deleteSubPath      = "/delete"
	submitBatchSubPath = "/submit-batch"
	runSubPath         = "/run"
	jobsSubPath        = "/jobs"
	tickSubPath        = "/tick"
)

const (
	paramID    = "id" // Delivery primary key
	paramIdent = "ident"
)

func SetupRoutes(
	deliveryHandler *rh.DeliveryHandler,
	jobHandler *rh.JobHandler,
	productHandler *rh.ProductHandler,
	sched *scheduler.Scheduler,
) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)                                                 // Log every request
	r.Use(middleware.Recoverer)                                              // Recover from panics
	r.Use(middleware.Timeout(60 * time.Second))                              // Set a timeout context for requests
	r.Use(SetHeader(webutil.HeaderContentType, webutil.ContentTypeJSONUTF8)) // Default Content-Type

	r.Route(apiBasePath, func(r chi.Router) {
		r.Use(NoCache)
		configureDeliveryRoutes(r, deliveryHandler)
		configureJobRoutes(r, jobHandler)
		configureProductRoutes(r, productHandler)
	})

	// Manual reconciler trigger
	r.Post(schedulerBasePath+tickSubPath, sched.HandleTick)

	// Health check endpoint
	r.Get("/healthz", handleHealthCheck)

	return r
}

// Helper for constructing paths with a parameter
func pathWithParam(basePath string, paramName string) string {
	if basePath == "" {
		return "/{" + paramName + "}"
	}
	return basePath + "/{" + paramName + "}"
}

// --- Delivery Routes ---
func configureDeliveryRoutes(r chi.Router, handler *rh.DeliveryHandler) {
	specificDeliveryPath := pathWithParam("", paramID) // e.g., "/{id}"

	r.Route(deliveriesBasePath, func(r chi.Router) {
		r.Get("/", webutil.MakeHandler(handler.HandleGetDeliveries))
		r.Post(deleteSubPath, webutil.MakeHandler(handler.HandleDeleteDeliveries)) // POST /deliveries/delete
		r.Post(submitBatchSubPath, webutil.MakeHandler(handler.HandleSubmitBatch)) // POST /deliveries/submit-batch
		r.Route(specificDeliveryPath, func(r chi.Router) {
			r.Get("/", webutil.MakeHandler(handler.HandleGetDelivery))
			r.Get(actionsSubPath, webutil.MakeHandler(handler.HandleGetDeliveryActions)) // GET /deliveries/{id}/actions
			r.Post(submitSubPath, webutil.MakeHandler(handler.HandleSubmitDelivery))     // POST /deliveries/{id}/submit
			r.Get(jobsSubPath, webutil.MakeHandler(handler.HandleGetJobHistory))         // GET /deliveries/{id}/jobs
		})
	})
}

// --- Job Routes ---
func configureJobRoutes(r chi.Router, handler *rh.JobHandler) {
	r.Post(jobsBasePath, webutil.MakeHandler(handler.HandleCreateJob))
	r.Post(jobsBasePath+deleteSubPath, webutil.MakeHandler(handler.HandleDeleteJobs)) // POST /jobs/delete
	r.Post(checksBasePath+runSubPath, webutil.MakeHandler(handler.HandleRunChecks))   // POST /checks/run
}

// --- Product Routes ---
func configureProductRoutes(r chi.Router, handler *rh.ProductHandler) {
	r.Route(productsBasePath, func(r chi.Router) {
		r.Get("/", webutil.MakeHandler(handler.HandleGetProducts))
		r.Get(pathWithParam("", paramIdent), webutil.MakeHandler(handler.HandleGetProduct))
	})
}

// handleHealthCheck responds to a health check request.
func handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(webutil.HeaderContentType, webutil.ContentTypeTextPlainUTF8)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
