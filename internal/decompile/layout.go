package decompile

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Directory layout under a decompile output root:
//
//	{root}/{artifact_stem}/{YYYYMMDD}-{service}@{host}/   decompiled sources
//	{root}/_jar/{service}@{host}/{jar_name}               retained JAR originals
//	{root}/_class/{service}@{host}/{class_path}.class     retained class originals
//
// The date fragment comes from the artifact's last_modified so re-listing an
// unchanged artifact maps to the same directory.

// dateFragment renders last_modified as YYYYMMDD, falling back to today
// when the artifact carried no timestamp.
func dateFragment(lastModified time.Time) string {
	if lastModified.IsZero() {
		return time.Now().UTC().Format("20060102")
	}
	return lastModified.UTC().Format("20060102")
}

// serviceTag is the {service}@{host} directory component.
func serviceTag(serviceName, host string) string {
	return fmt.Sprintf("%s@%s", serviceName, host)
}

// JarStem strips the .jar extension from an archive name.
func JarStem(jarName string) string {
	return strings.TrimSuffix(jarName, ".jar")
}

// OutputDir is where decompiled sources for one (artifact, service) land.
func OutputDir(root, artifactStem, serviceName, host string, lastModified time.Time) string {
	return filepath.Join(root, artifactStem,
		fmt.Sprintf("%s-%s", dateFragment(lastModified), serviceTag(serviceName, host)))
}

// RetainedJarPath is the local copy of a fetched JAR.
func RetainedJarPath(root, serviceName, host, jarName string) string {
	return filepath.Join(root, "_jar", serviceTag(serviceName, host), jarName)
}

// RetainedClassPath is the local copy of a fetched class file; relPath is
// the slash-separated path below the classes directory.
func RetainedClassPath(root, serviceName, host, relPath string) string {
	return filepath.Join(root, "_class", serviceTag(serviceName, host), filepath.FromSlash(relPath))
}

// ClassRelPath converts a fully-qualified class name back to its file path
// below the classes directory.
func ClassRelPath(classFullName string) string {
	return strings.ReplaceAll(classFullName, ".", "/") + ".class"
}
