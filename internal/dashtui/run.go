package dashtui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pulseboard/pulseboard/internal/client"
)

// Run starts the dashboard against the given server and blocks until
// the user quits.
func Run(opts client.Options) error {
	state := client.NewState()

	var program *tea.Program
	opts.OnChange = func() {
		if program != nil {
			program.Send(stateChangedMsg{})
		}
	}

	manager := client.NewManager(state, opts)
	program = tea.NewProgram(NewModel(manager), tea.WithAltScreen())

	manager.Connect()
	defer manager.Disconnect()

	_, err := program.Run()
	return err
}
