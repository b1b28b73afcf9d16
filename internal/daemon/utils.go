package daemon

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/David-Antunes/klonet/api"
)

func ParseRequest(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		daemonLog.WithField("path", c.Request.URL.Path).Warn("malformed request: ", err)
		SendError(c, err)
		return false
	}
	return true
}

// SendResponse writes a successful envelope merged with the fields of resp.
func SendResponse(c *gin.Context, resp gin.H) {
	if resp == nil {
		resp = gin.H{}
	}
	resp["code"] = api.SuccessCode
	if _, ok := resp["msg"]; !ok {
		resp["msg"] = "success"
	}
	c.JSON(http.StatusOK, resp)
}

// SendError reports an application failure. The backend answers those with
// status 200 and code 0.
func SendError(c *gin.Context, err error) {
	c.JSON(http.StatusOK, api.Failure(err.Error()))
}
