// Package all imports all supported package source implementations.
//
// Import this package for its side effects to register every source kind:
//
//	import (
//		"github.com/git-pkgs/hishell"
//		_ "github.com/git-pkgs/hishell/all"
//	)
//
//	// Now all source kinds are available
//	kinds := hishell.SupportedKinds()
//	// ["local", "nuget"]
package all

import (
	_ "github.com/git-pkgs/hishell/internal/local"
	_ "github.com/git-pkgs/hishell/internal/nuget"
)
