// Package version 提供构建信息：通过 -ldflags 在构建时注入，
// 用于 restc version 子命令和请求的 User-Agent。
package version

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"

	"github.com/gosuri/uitable"
)

// 以下变量通过 -ldflags "-X github.com/lgc202/restkit/version.gitVersion=..." 注入
var (
	// gitVersion 是语义化的版本号，格式为 vMAJOR.MINOR.PATCH[-PRERELEASE][+BUILD]
	gitVersion = "v0.0.0-dev"
	// buildDate 是 ISO8601 格式的构建时间
	buildDate = "1970-01-01T00:00:00Z"
	// gitCommit 是 $(git rev-parse HEAD) 的输出
	gitCommit = ""
	// gitTreeState 为 clean 或 dirty
	gitTreeState = ""
)

// Info 构建信息
type Info struct {
	GitVersion   string `json:"gitVersion"`
	GitCommit    string `json:"gitCommit,omitempty"`
	GitTreeState string `json:"gitTreeState,omitempty"`
	BuildDate    string `json:"buildDate"`
	GoVersion    string `json:"goVersion"`
	Platform     string `json:"platform"`
}

// Get 返回当前二进制的构建信息
func Get() Info {
	return Info{
		GitVersion:   gitVersion,
		GitCommit:    gitCommit,
		GitTreeState: gitTreeState,
		BuildDate:    buildDate,
		GoVersion:    runtime.Version(),
		Platform:     runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String 返回版本号，工作区有未提交修改时追加 -dirty
func (info Info) String() string {
	if info.GitTreeState == "dirty" {
		return info.GitVersion + "-dirty"
	}
	return info.GitVersion
}

// UserAgent 返回形如 "restc/v1.2.0 (linux/amd64; go1.24.1)" 的 User-Agent
func (info Info) UserAgent(product string) string {
	return fmt.Sprintf("%s/%s (%s; %s)", product, info.String(), info.Platform, info.GoVersion)
}

// Text 以对齐的表格文本输出
func (info Info) Text() string {
	table := uitable.New()
	table.RightAlign(0)
	table.MaxColWidth = 80
	table.Separator = " "
	table.AddRow("version:", info.String())
	if info.GitCommit != "" {
		table.AddRow("commit:", info.GitCommit)
	}
	table.AddRow("built:", info.BuildDate)
	table.AddRow("go:", info.GoVersion)
	table.AddRow("platform:", info.Platform)
	return table.String()
}

// Write 按 format（text、json、short）输出到 w
func (info Info) Write(w io.Writer, format string) error {
	switch format {
	case "", "text":
		_, err := fmt.Fprintln(w, info.Text())
		return err
	case "short":
		_, err := fmt.Fprintln(w, info.String())
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(info); err != nil {
			return fmt.Errorf("failed to marshal version info: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
