/*
   Copyright @ 2021 bocloud <fushaosong@beyondcent.com>.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/


package run

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carina-io/kdisk/pkg/devicemanager"
	"github.com/carina-io/kdisk/utils/log"
)

type eHttpServer struct {
	e        *echo.Echo
	registry *devicemanager.TaskRegistry
	stopChan <-chan struct{}
}

type taskView struct {
	Path      string    `json:"path"`
	Type      string    `json:"type"`
	Status    int       `json:"status"`
	Result    string    `json:"result"`
	State     string    `json:"state"`
	Progress  float64   `json:"progress"`
	StartedAt time.Time `json:"startedAt"`
	Duration  float64   `json:"durationSeconds"`
}

func newHttpServer(registry *devicemanager.TaskRegistry, gatherer prometheus.Gatherer, stopChan <-chan struct{}) *eHttpServer {
	h := &eHttpServer{
		e:        echo.New(),
		registry: registry,
		stopChan: stopChan,
	}
	h.e.HideBanner = true
	h.e.GET("/device", h.deviceInfo)
	h.e.GET("/device/label", h.deviceLabel)
	h.e.GET("/device/size", h.deviceSize)
	h.e.GET("/device/find", h.deviceFind)
	h.e.POST("/format", h.formatStart)
	h.e.GET("/format", h.formatStatus)
	h.e.DELETE("/format", h.formatCancel)
	h.e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return h
}

func (h *eHttpServer) start(addr string) error {
	go func() {
		<-h.stopChan
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.e.Shutdown(ctx); err != nil {
			log.Warnf("http server shutdown: %v", err)
		}
	}()

	log.Infof("http server listen on %s", addr)
	if err := h.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (h *eHttpServer) dm() *devicemanager.DeviceManager {
	return h.registry.Manager()
}

func devicePath(c echo.Context) (string, error) {
	path := c.QueryParam("path")
	if path == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "query parameter path is required")
	}
	return path, nil
}

func (h *eHttpServer) deviceInfo(c echo.Context) error {
	path, err := devicePath(c)
	if err != nil {
		return err
	}
	info, err := h.dm().Info(c.Request().Context(), path)
	if errors.Is(err, devicemanager.ErrNotFound) {
		return c.JSON(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, info)
}

func (h *eHttpServer) deviceLabel(c echo.Context) error {
	path, err := devicePath(c)
	if err != nil {
		return err
	}
	label, ok := h.dm().GetDeviceLabel(c.Request().Context(), path)
	return c.JSON(http.StatusOK, echo.Map{"path": path, "label": label, "found": ok})
}

func (h *eHttpServer) deviceSize(c echo.Context) error {
	path, err := devicePath(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"path": path, "size": h.dm().GetDeviceSize(c.Request().Context(), path)})
}

func (h *eHttpServer) deviceFind(c echo.Context) error {
	path, err := devicePath(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"path": path, "found": h.dm().Find(c.Request().Context(), path)})
}

func (h *eHttpServer) formatStart(c echo.Context) error {
	var req devicemanager.FormatRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Device == "" || req.Type == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "path and type are required")
	}

	// the format outlives the request
	task, err := h.registry.Start(context.Background(), req)
	if errors.Is(err, devicemanager.ErrBusy) {
		return c.JSON(http.StatusConflict, h.view(c.Request().Context(), task))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, h.view(c.Request().Context(), task))
}

func (h *eHttpServer) formatStatus(c echo.Context) error {
	path, err := devicePath(c)
	if err != nil {
		return err
	}
	task, ok := h.registry.Get(path)
	if !ok {
		return c.JSON(http.StatusNotFound, "no format task for "+path)
	}
	return c.JSON(http.StatusOK, h.view(c.Request().Context(), task))
}

func (h *eHttpServer) formatCancel(c echo.Context) error {
	path, err := devicePath(c)
	if err != nil {
		return err
	}
	h.dm().CancelFormat(c.Request().Context(), path)
	return c.NoContent(http.StatusNoContent)
}

// view asks udisks for the job progress only while the task is pending.
func (h *eHttpServer) view(ctx context.Context, t *devicemanager.FormatTask) taskView {
	req := t.Request()
	v := taskView{
		Path:      req.Device,
		Type:      req.Type,
		Status:    int(t.Status()),
		Result:    t.Status().String(),
		State:     t.State().String(),
		StartedAt: t.StartedAt(),
		Duration:  t.Duration().Seconds(),
	}
	switch t.Status() {
	case devicemanager.StatusPending:
		v.Progress = h.dm().GetFormatBytesDone(ctx, req.Device)
	case devicemanager.StatusSucceeded:
		v.Progress = 1
	}
	return v
}
