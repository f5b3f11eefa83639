package main

import (
	"github.com/mrInvincible29/Qguardarr/cmd"

	_ "github.com/mrInvincible29/Qguardarr/cmd/serve"
	_ "github.com/mrInvincible29/Qguardarr/cmd/version"
)

func main() {
	cmd.Execute()
}
