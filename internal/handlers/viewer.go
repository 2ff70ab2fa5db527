package handlers

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Ejimurphy/task-earnings-bot/internal/logger"
	"github.com/Ejimurphy/task-earnings-bot/internal/service"
)

var viewerTemplate = template.Must(template.New("viewer").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Watch ads and earn</title>
<script src="https://telegram.org/js/telegram-web-app.js"></script>
{{if .ZoneID}}<script src="{{.SDKURL}}" data-zone="{{.ZoneID}}" data-sdk="show_{{.ZoneID}}"></script>{{end}}
<style>
body { font-family: sans-serif; text-align: center; padding: 24px; }
button { font-size: 18px; padding: 12px 24px; }
#progress { font-size: 22px; margin: 16px 0; }
</style>
</head>
<body>
<h2>Watch {{.Required}} ads to earn your reward</h2>
<div id="progress">{{.Count}} / {{.Required}}</div>
{{if .Completed}}
<p>This task is complete. Go back to the bot to start a new one.</p>
{{else}}
<button id="watch">Watch next ad</button>
<p id="status"></p>
{{end}}
<script>
(function () {
  var sessionId = {{.SessionID}};
  var required = {{.Required}};
  var show = window[{{.ShowFunc}}];
  var tg = window.Telegram && window.Telegram.WebApp;
  if (tg) { tg.ready(); }

  function refresh() {
    if (!tg || !tg.initData) { return; }
    fetch("/api/sessions/" + encodeURIComponent(sessionId), {
      headers: { "X-Telegram-Init-Data": tg.initData }
    }).then(function (r) { return r.json(); }).then(function (p) {
      document.getElementById("progress").textContent = p.count + " / " + required;
      if (p.completed) { document.getElementById("status").textContent = "Reward credited! Return to the bot."; }
      else if (p.reset) { document.getElementById("status").textContent = "Progress was reset after inactivity."; }
    });
  }

  var btn = document.getElementById("watch");
  if (!btn) { return; }
  btn.addEventListener("click", function () {
    if (typeof show !== "function") {
      document.getElementById("status").textContent = "Ads are not available right now.";
      return;
    }
    btn.disabled = true;
    show({ ymid: sessionId }).then(function () {
      setTimeout(refresh, 1500);
    }).catch(function () {
      document.getElementById("status").textContent = "The ad could not be shown, try again.";
    }).finally(function () { btn.disabled = false; });
  });
  refresh();
})();
</script>
</body>
</html>
`))

type viewerPage struct {
	SessionID string
	ZoneID    string
	SDKURL    string
	ShowFunc  string
	Count     int
	Required  int
	Completed bool
}

// HandleAdViewer serves the ad viewer page for a session
func (h *Handler) HandleAdViewer(c *gin.Context) {
	sessionID := c.Param("session")
	progress, err := h.tasks.Progress(c.Request.Context(), sessionID)
	if errors.Is(err, service.ErrSessionNotFound) {
		c.String(http.StatusNotFound, "This task link is not valid. Start a new task from the bot.")
		return
	}
	if err != nil {
		logger.Error(0, "ad_viewer_failed", err)
		c.String(http.StatusInternalServerError, "Something went wrong, please try again later.")
		return
	}

	page := viewerPage{
		SessionID: sessionID,
		ZoneID:    h.zoneID,
		SDKURL:    h.sdkURL,
		ShowFunc:  "show_" + h.zoneID,
		Count:     progress.Count,
		Required:  progress.Required,
		Completed: progress.Completed,
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := viewerTemplate.Execute(c.Writer, page); err != nil {
		logger.Error(0, "ad_viewer_render_failed", err)
	}
}
