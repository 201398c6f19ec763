// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	wqconfig "github.com/liquidqueue/withdrawalqueue/config"
	"github.com/liquidqueue/withdrawalqueue/storage"
	"github.com/liquidqueue/withdrawalqueue/withdrawal"
)

func newMonitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Open a live dashboard of queue depth, locked NAT and recent requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")

			cfg, err := wqconfig.Load(configPath)
			if err != nil {
				return err
			}

			store, err := storage.OpenBoltStore(cfg.Store.DataPath)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer store.Close()

			_, err = tea.NewProgram(newMonitorModel(store)).Run()

			return err
		},
	}
}

type tickMsg time.Time

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// monitorModel is a bubbletea model polling store on a fixed interval
// and rendering queue depth, locked NAT, and the most recent requests
// in a bubbles/table.
type monitorModel struct {
	store  withdrawal.Store
	table  table.Model
	header string
	err    error
}

func newMonitorModel(store withdrawal.Store) monitorModel {
	columns := []table.Column{
		{Title: "ID", Width: 8},
		{Title: "Owner", Width: 24},
		{Title: "Claimed", Width: 8},
	}

	t := table.New(table.WithColumns(columns), table.WithFocused(false), table.WithHeight(15))

	return monitorModel{store: store, table: t}
}

func (m monitorModel) Init() tea.Cmd {
	return tickEvery(time.Second)
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case tickMsg:
		m.refresh()
		return m, tickEvery(time.Second)
	}

	return m, nil
}

func (m *monitorModel) refresh() {
	lastRequest, err := m.store.LastRequestID()
	if err != nil {
		m.err = err
		return
	}

	lastFinalized, err := m.store.LastFinalizedRequestID()
	if err != nil {
		m.err = err
		return
	}

	lockedNAT, err := m.store.LockedNAT()
	if err != nil {
		m.err = err
		return
	}

	m.header = fmt.Sprintf("requests=%d finalized=%d locked_nat=%s",
		lastRequest, lastFinalized, withdrawal.FormatNAT(lockedNAT, 18))

	rows := make([]table.Row, 0, 15)

	var start withdrawal.RequestID
	if lastRequest > 15 {
		start = lastRequest - 15
	}

	for id := start + 1; id <= lastRequest; id++ {
		req, err := m.store.RequestAt(id)
		if err != nil {
			continue
		}

		rows = append(rows, table.Row{
			fmt.Sprintf("%d", id),
			string(req.Owner),
			fmt.Sprintf("%t", req.Claimed),
		})
	}

	m.table.SetRows(rows)
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

func (m monitorModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("error: %v\n", m.err)
	}

	return headerStyle.Render(m.header) + "\n\n" + m.table.View() + "\n\npress q to quit\n"
}
