package ui

import "fmt"

func PrintBanner() {
	banner := `
    ██╗  ██╗ ██████╗ ███████╗████████╗██╗███╗   ██╗ ██████╗  ██████╗████████╗██╗
    ██║  ██║██╔═══██╗██╔════╝╚══██╔══╝██║████╗  ██║██╔════╝ ██╔════╝╚══██╔══╝██║
    ███████║██║   ██║███████╗   ██║   ██║██╔██╗ ██║██║  ███╗██║        ██║   ██║
    ██╔══██║██║   ██║╚════██║   ██║   ██║██║╚██╗██║██║   ██║██║        ██║   ██║
    ██║  ██║╚██████╔╝███████║   ██║   ██║██║ ╚████║╚██████╔╝╚██████╗   ██║   ███████╗
    ╚═╝  ╚═╝ ╚═════╝ ╚══════╝   ╚═╝   ╚═╝╚═╝  ╚═══╝ ╚═════╝  ╚═════╝   ╚═╝   ╚══════╝
    `
	fmt.Printf("\033[1;36m%s\033[0m\n", banner)
}
