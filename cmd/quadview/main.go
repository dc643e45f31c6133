package main

import (
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/google/uuid"

	"github.com/vkngwrapper/quadview/internal/app"
	"github.com/vkngwrapper/quadview/internal/config"
)

func init() {
	// SDL and the window surface must stay on the main thread.
	runtime.LockOSThread()
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.SetPrefix(fmt.Sprintf("[%s] ", uuid.NewString()[:8]))

	application := app.New(config.Default(), os.DirFS("."))
	err := application.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}
