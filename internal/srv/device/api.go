package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jypelle/bildkadro/apimodel"
	"github.com/jypelle/bildkadro/internal/srv/config"
	"github.com/jypelle/bildkadro/internal/srv/event"
	"github.com/jypelle/bildkadro/internal/tool"
	"github.com/sirupsen/logrus"
)

// loopResponseTimeout bounds how long a virtual touch waits for the control loop, which
// can be busy fading or downloading.
const loopResponseTimeout = 60 * time.Second

type StatusProvider func() apimodel.Status

type Api struct {
	eventChannel chan event.ApiEvent

	router    *mux.Router
	apiRouter *mux.Router
	server    *http.Server

	configDir string
	apiParam  config.ApiParam
	status    StatusProvider
	timeout   time.Duration
}

func NewApi(configDir string, apiParam config.ApiParam, status StatusProvider) *Api {
	api := Api{
		configDir:    configDir,
		apiParam:     apiParam,
		status:       status,
		timeout:      loopResponseTimeout,
		eventChannel: make(chan event.ApiEvent),
	}

	api.router = mux.NewRouter().StrictSlash(false)

	// API Routes
	api.apiRouter = api.router.PathPrefix("/api").Subrouter()
	api.apiRouter.NotFoundHandler = http.HandlerFunc(ErrorNotFoundAction)
	api.apiRouter.MethodNotAllowedHandler = http.HandlerFunc(ErrorMethodNotAllowedAction)

	// Auth middleware
	api.apiRouter.Use(
		func(handler http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				defer func() {
					if rec := recover(); rec != nil {
						logrus.Warningf("recovered from panic : [%v] - stack trace : \n [%s]", rec, debug.Stack())
						strMessage := fmt.Sprintf("%v", rec)
						GlobalErrorAction(w, strMessage, http.StatusInternalServerError)
					}
				}()

				// Check API Key
				apiKey := r.Header.Get("x-api-key")
				if apiKey != apiParam.ApiKey {
					ErrorStatusAction(w, r, http.StatusForbidden)
					return
				}

				logrus.Debugf("PATH: %s %s", r.Host, r.URL.Path)

				handler.ServeHTTP(w, r)
			})
		})

	// Create server check endpoint
	api.apiRouter.HandleFunc("/is_alive",
		func(w http.ResponseWriter, r *http.Request) {
			ErrorStatusAction(w, r, http.StatusOK)
		}).Methods("GET")
	api.apiRouter.HandleFunc("/status",
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(api.status()); err != nil {
				logrus.Warnf("Unable to encode status: %v", err)
			}
		}).Methods("GET")
	api.apiRouter.HandleFunc("/screen/touch",
		func(w http.ResponseWriter, r *http.Request) {
			err := api.sendEvent(r.Context(), event.ApiEventTouchData{})
			switch {
			case err == nil:
				ErrorStatusAction(w, r, http.StatusOK)
			case errors.Is(err, event.ErrTouchIgnored):
				apimodel.TouchIgnoredErrorMessage.SendError(w)
			case errors.Is(err, context.DeadlineExceeded):
				apimodel.LoopUnavailableErrorMessage.SendError(w)
			default:
				GlobalErrorAction(w, err.Error(), http.StatusInternalServerError)
			}
		}).Methods("POST")

	// Tell the browser that it's OK for JS to communicate with the server
	headersOk := handlers.AllowedHeaders([]string{"Authorization", "X-Api-Key"})
	originsOk := handlers.AllowedOrigins([]string{"*"})
	methodsOk := handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"})

	api.server = &http.Server{
		Addr:         ":" + strconv.FormatInt(apiParam.SslPort, 10),
		Handler:      api.Handler(headersOk, originsOk, methodsOk),
		ReadTimeout:  time.Second * 240,
		WriteTimeout: time.Second * 240,
		IdleTimeout:  time.Second * 240,
	}

	return &api
}

// Handler returns the API routes wrapped with compression and CORS.
func (d *Api) Handler(corsOptions ...handlers.CORSOption) http.Handler {
	return handlers.CompressHandler(handlers.CORS(corsOptions...)(d.router))
}

// sendEvent hands data to the control loop and waits for its answer.
func (d *Api) sendEvent(ctx context.Context, data interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	result := make(chan error, 1)
	select {
	case d.eventChannel <- event.ApiEvent{Result: result, Data: data}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start serves the API over TLS until Stop is called.
func (d *Api) Start() error {
	logrus.Infof("Start api device")

	err := tool.EnsureTlsCertificate(
		"jypelle",
		"Bildkadro Server",
		d.selfSignedKeyFilename(),
		d.selfSignedCertFilename(),
		[]string{})
	if err != nil {
		return err
	}

	err = d.server.ListenAndServeTLS(d.selfSignedCertFilename(), d.selfSignedKeyFilename())
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (d *Api) Stop() {
	logrus.Infof("Stop api device")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.server.Shutdown(ctx)
}

func (d *Api) EventChannel() chan event.ApiEvent {
	return d.eventChannel
}

func (d *Api) selfSignedKeyFilename() string {
	return filepath.Join(d.configDir, "key.pem")
}

func (d *Api) selfSignedCertFilename() string {
	return filepath.Join(d.configDir, "cert.pem")
}

func ErrorNotFoundAction(w http.ResponseWriter, r *http.Request) {
	ErrorStatusAction(w, r, http.StatusNotFound)
}

func ErrorMethodNotAllowedAction(w http.ResponseWriter, r *http.Request) {
	ErrorStatusAction(w, r, http.StatusMethodNotAllowed)
}

func ErrorStatusAction(w http.ResponseWriter, r *http.Request, status int) {
	ErrorMessageAction(w, "", status)
}

func GlobalErrorAction(w http.ResponseWriter, message string, status int) {
	ErrorMessageAction(w, message, status)
}

func ErrorMessageAction(w http.ResponseWriter, title string, status int) {
	errorMessage := apimodel.ErrorMessage{
		ErrStatusCode: status,
		ErrMessage:    title,
	}
	if title == "" && status == http.StatusOK {
		errorMessage.ErrMessage = "Ok"
	} else if title == "" && status == http.StatusMethodNotAllowed {
		errorMessage.ErrMessage = "Method not allowed"
	}
	errorMessage.SendError(w)
}
