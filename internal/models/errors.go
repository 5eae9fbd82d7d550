package models

import "errors"

var (
	// ErrTranscriptNotFound 转写文件不存在错误
	ErrTranscriptNotFound = errors.New("transcript not found")

	// ErrInvalidTranscriptStatus 无效的转写文件状态错误
	ErrInvalidTranscriptStatus = errors.New("invalid transcript status")

	// ErrDuplicateTranscript 相同内容的转写文件已存在
	ErrDuplicateTranscript = errors.New("transcript with identical content already exists")
)
