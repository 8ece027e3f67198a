package respond

import "github.com/gin-gonic/gin"

// The platform-wide response envelope:
// {success:true,data}|{success:true,message}|{success:false,error}.

func OK(c *gin.Context, data any) {
	c.JSON(200, gin.H{"success": true, "data": data})
}

func Created(c *gin.Context, data any) {
	c.JSON(201, gin.H{"success": true, "data": data})
}

func Accepted(c *gin.Context, data any) {
	c.JSON(202, gin.H{"success": true, "data": data})
}

func Message(c *gin.Context, msg string) {
	c.JSON(200, gin.H{"success": true, "message": msg})
}

func Fail(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}
