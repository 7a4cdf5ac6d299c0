// Package notice renders the user facing messages of the client in English
// or Simplified Chinese.
package notice

import (
	"errors"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"videoclient/internal/domain"
)

// Key identifies a notice.
type Key string

const (
	TaskCreated         Key = "task_created"
	TaskCreateFailed    Key = "task_create_failed"
	GenerationSucceeded Key = "generation_succeeded"
	GenerationFailed    Key = "generation_failed"
	Progress            Key = "progress"
	JobNotFound         Key = "job_not_found"
	PromptRequired      Key = "prompt_required"
	NetworkError        Key = "network_error"
	SessionExpired      Key = "session_expired"
	NotLoggedIn         Key = "not_logged_in"
	LoggedIn            Key = "logged_in"
	LoginFailed         Key = "login_failed"
	LoggedOut           Key = "logged_out"
)

var supported = []language.Tag{language.English, language.SimplifiedChinese}

var matcher = language.NewMatcher(supported)

var translations = map[Key][2]string{
	TaskCreated:         {"Task %s created, the video is being generated. Please wait...", "任务 %s 创建成功，视频生成任务已开始，请耐心等待..."},
	TaskCreateFailed:    {"Failed to create task: %s", "创建任务失败: %s"},
	GenerationSucceeded: {"Video generated successfully!", "视频生成成功！"},
	GenerationFailed:    {"Video generation failed: %s", "视频生成失败: %s"},
	Progress:            {"Status %s, progress %d%%", "状态 %s，进度 %d%%"},
	JobNotFound:         {"Task does not exist", "任务不存在"},
	PromptRequired:      {"Please enter a video description", "请输入视频描述"},
	NetworkError:        {"Network error, please check your connection and retry", "网络错误，请检查网络连接后重试"},
	SessionExpired:      {"Session expired, please log in again", "登录已过期，请重新登录"},
	NotLoggedIn:         {"Not logged in, run login first", "未登录，请先登录"},
	LoggedIn:            {"Logged in as %s", "已登录: %s"},
	LoginFailed:         {"Login failed: %s", "登录失败: %s"},
	LoggedOut:           {"Logged out", "已退出登录"},
}

var notices = buildCatalog()

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, text := range translations {
		for i, tag := range supported {
			if err := b.SetString(tag, string(key), text[i]); err != nil {
				panic(err)
			}
		}
	}
	return b
}

// Printer formats notices for one language.
type Printer struct {
	tag language.Tag
	p   *message.Printer
}

// NewPrinter picks the closest supported language for locale, such as "zh",
// "zh-CN" or "en-US". Unknown or empty locales fall back to English.
func NewPrinter(locale string) *Printer {
	tag := language.English
	if parsed, err := language.Parse(locale); err == nil {
		_, idx, conf := matcher.Match(parsed)
		if conf != language.No {
			tag = supported[idx]
		}
	}
	return &Printer{tag: tag, p: message.NewPrinter(tag, message.Catalog(notices))}
}

// Tag returns the language in use.
func (p *Printer) Tag() language.Tag {
	return p.tag
}

// Sprintf renders key with args.
func (p *Printer) Sprintf(key Key, args ...any) string {
	return p.p.Sprintf(string(key), args...)
}

// Error renders the notice for a known client error and the raw message
// otherwise.
func (p *Printer) Error(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrSessionExpired):
		return p.Sprintf(SessionExpired)
	case errors.Is(err, domain.ErrNotAuthenticated):
		return p.Sprintf(NotLoggedIn)
	case errors.Is(err, domain.ErrTransport):
		return p.Sprintf(NetworkError)
	case errors.Is(err, domain.ErrJobNotFound):
		return p.Sprintf(JobNotFound)
	case errors.Is(err, domain.ErrInvalidPrompt):
		return p.Sprintf(PromptRequired)
	default:
		return err.Error()
	}
}
