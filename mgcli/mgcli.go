package mgcli

import (
	"fmt"
	"github.com/urfave/cli"
	"os"
)

type App struct {
	cli.App
}

// NewApp returns a cli.App with the defaults shared by all gomode commands
func NewApp() *App {
	app := &App{App: *cli.NewApp()}
	app.HideVersion = true
	app.Writer = os.Stdout
	app.ErrWriter = os.Stderr
	return app
}

// RunAndExitOnError runs the app with os.Args and exits if it fails
func (app *App) RunAndExitOnError() {
	if err := app.Run(os.Args); err != nil {
		cli.HandleExitCoder(err)
		fmt.Fprintln(app.ErrWriter, err)
		os.Exit(1)
	}
}

// Error returns an error that makes the app exit with status 1 after printing `msg err`
func Error(msg string, err error) error {
	if err == nil {
		return cli.NewExitError(msg, 1)
	}
	return cli.NewExitError(msg+" "+err.Error(), 1)
}

// Action wraps f so that errors it returns make the app exit with status 1
func Action(f func(*cli.Context) error) cli.ActionFunc {
	return func(cx *cli.Context) error {
		err := f(cx)
		if err == nil {
			return nil
		}
		if _, ok := err.(cli.ExitCoder); ok {
			return err
		}
		return cli.NewExitError(err.Error(), 1)
	}
}
