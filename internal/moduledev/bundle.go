package moduledev

import (
	"fmt"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"
)

// BundleModuleScript bundles entryPoint and everything it imports into a
// single self-contained ES module, the same esbuild invocation the
// teacher's BundleWorkerScript uses for _worker.js, repurposed here for a
// Zipline application's JS entry point rather than a Workers script.
func BundleModuleScript(workingDir, entryPoint string) (string, error) {
	result := esbuild.Build(esbuild.BuildOptions{
		EntryPoints:   []string{entryPoint},
		AbsWorkingDir: workingDir,
		Bundle:        true,
		Format:        esbuild.FormatESModule,
		Write:         false,
		Platform:      esbuild.PlatformNeutral,
		Target:        esbuild.ES2022,
		TreeShaking:   esbuild.TreeShakingFalse,
	})
	if len(result.Errors) > 0 {
		msgs := make([]string, len(result.Errors))
		for i, e := range result.Errors {
			msgs[i] = e.Text
		}
		return "", fmt.Errorf("moduledev: bundling %s: %s", entryPoint, strings.Join(msgs, "; "))
	}
	if len(result.OutputFiles) == 0 {
		return "", fmt.Errorf("moduledev: bundling %s produced no output", entryPoint)
	}
	return string(result.OutputFiles[0].Contents), nil
}
