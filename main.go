package main

import "github.com/BridgeDigitalHealth/MobilePassiveData-SDK/cmd"

func main() {
	cmd.Execute()
}
