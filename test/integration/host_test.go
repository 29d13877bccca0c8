// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/loglens/loglens/internal/plugin"
	"github.com/loglens/loglens/internal/source"
	sdk "github.com/loglens/loglens/pkg/plugin"
	"github.com/loglens/loglens/plugins/daemonmon"
	"github.com/loglens/loglens/plugins/echo"
	"github.com/loglens/loglens/plugins/nonverbose"
	"github.com/loglens/loglens/plugins/timeline"
)

const rulesYAML = `
rules:
  - name: boot
    match: "ID0042*"
    template: "boot sequence (%s)"
`

func writeFile(dir, name, content string) string {
	path := filepath.Join(dir, name)
	Expect(os.WriteFile(path, []byte(content), 0o600)).To(Succeed())
	return path
}

var _ = Describe("Plugin host", func() {
	var (
		dispatcher *plugin.Dispatcher
		tl         *timeline.Plugin
		nv         *nonverbose.Plugin
		dir        string
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()

		dispatcher = plugin.NewDispatcher()
		tl = timeline.New()
		nv = nonverbose.New()

		Expect(dispatcher.Register(tl)).To(Succeed())
		Expect(dispatcher.Register(nv)).To(Succeed())
		Expect(dispatcher.Register(echo.New(echo.WithStepDelay(time.Millisecond)))).To(Succeed())

		rules := writeFile(dir, "rules.yaml", rulesYAML)
		Expect(dispatcher.LoadConfig("nonverbose", rules)).To(Succeed())
	})

	Describe("streaming a log through the pipeline", func() {
		It("delivers the initial load and subsequent update rounds", func() {
			logPath := writeFile(dir, "app.log", "ID0042 aa\nplain\n")

			src, err := source.Open(logPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(dispatcher.LoadSource(src)).To(Succeed())

			view, ok := dispatcher.View("timeline")
			Expect(ok).To(BeTrue())

			var sb strings.Builder
			Expect(view.Render(&sb)).To(Succeed())
			Expect(sb.String()).To(ContainSubstring("messages: 2 raw, 1 decoded"))

			batches := make(chan int, 4)
			follower, err := source.NewFollower(src, logPath, 10*time.Millisecond, func(from int) {
				Expect(dispatcher.ApplyUpdate(src, from)).To(Succeed())
				batches <- from
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(follower.Start(context.Background())).To(Succeed())
			defer follower.Stop()

			f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o600)
			Expect(err).NotTo(HaveOccurred())
			_, err = f.WriteString("ID0042 bb\n")
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Close()).To(Succeed())

			Eventually(batches, 5*time.Second).Should(Receive(Equal(2)))

			sb.Reset()
			Expect(view.Render(&sb)).To(Succeed())
			Expect(sb.String()).To(ContainSubstring("messages: 3 raw, 2 decoded"))
			Expect(sb.String()).To(ContainSubstring("update rounds: 1"))
		})
	})

	Describe("command protocol", func() {
		It("runs a background command to completion", func() {
			Expect(dispatcher.ExecCommand("echo", "slow-task", []string{"3"})).To(Succeed())

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			result, err := dispatcher.WaitCommand(ctx, "echo", time.Millisecond)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal("completed 3 steps"))
		})

		It("rejects overlapping invocations and recovers after cancel", func() {
			Expect(dispatcher.ExecCommand("echo", "slow-task", []string{"1000"})).To(Succeed())
			Expect(dispatcher.ExecCommand("echo", "echo", []string{"x"})).To(MatchError(sdk.ErrCommandInFlight))

			Expect(dispatcher.CancelCommand("echo")).To(Succeed())
			Eventually(func() int {
				p, _ := dispatcher.CommandProgress("echo")
				return p
			}, 5*time.Second).Should(BeNumerically(">=", sdk.CommandDone))

			_, err := dispatcher.CommandResult("echo")
			Expect(err).NotTo(HaveOccurred())

			Expect(dispatcher.ExecCommand("echo", "echo", []string{"back"})).To(Succeed())
			result, err := dispatcher.CommandResult("echo")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal("back"))
		})
	})

	Describe("control channel", func() {
		It("feeds connection state to controller plugins", func() {
			mon := daemonmon.New()
			Expect(dispatcher.Register(mon)).To(Succeed())
			Expect(dispatcher.BindControl(plugin.LogControl{})).To(Succeed())

			dispatcher.SetConnections([]string{"ecu1", "ecu2"})
			Expect(dispatcher.StateChanged(0, sdk.StateConnected)).To(Succeed())
			Expect(dispatcher.StateChanged(0, sdk.StateConnected)).To(Succeed())

			conns := mon.Connections()
			Expect(conns).To(HaveLen(2))
			Expect(conns[0].State).To(Equal(sdk.StateConnected))
			Expect(conns[0].Spurious).To(Equal(1))
		})
	})
})
