package main

import (
	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"

	"github.com/David-Antunes/klonet/cmd"
)

func main() {
	logrus.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		FieldsOrder:     []string{"component", "project"},
		TimestampFormat: "15:04:05",
	})
	cmd.Execute()
}
