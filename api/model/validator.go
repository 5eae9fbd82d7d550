package model

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// ICSI会议ID形如Bmr001：一位场地字母、两位会议类型字母、三位编号
var meetingIDPattern = regexp.MustCompile(`^[A-Za-z]{3}[0-9]{3}$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("meetingid", validateMeetingID)
	}
}

// validateMeetingID 校验meetingid标签对应的字段值
func validateMeetingID(fl validator.FieldLevel) bool {
	return meetingIDPattern.MatchString(fl.Field().String())
}
