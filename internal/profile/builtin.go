package profile

// 内置生态：后缀均按“路径以其结尾”匹配，区分大小写，与镜像上的实际文件名保持一致。
func init() {
	MustRegister(Profile{
		Key:            "pacman",
		Description:    "Artix/Arch pacman mirrors: packages, repo databases, signatures and file lists",
		PackageManager: "pacman",
		CacheableSuffixes: []string{
			".pkg.tar.zst",
			".pkg.tar.xz",
			".db",
			".db.sig",
			".files",
		},
	})

	MustRegister(Profile{
		Key:            "xbps",
		Description:    "Void Linux xbps mirrors: packages, signatures and repodata",
		PackageManager: "xbps",
		CacheableSuffixes: []string{
			".xbps",
			".xbps.sig",
			".xbps.sig2",
			"-repodata",
		},
	})

	// APKINDEX 与包体都落盘；索引不会再验证，需要刷新时清理缓存目录。
	MustRegister(Profile{
		Key:            "apk",
		Description:    "Alpine apk mirrors: packages and APKINDEX archives",
		PackageManager: "apk",
		CacheableSuffixes: []string{
			".apk",
			"APKINDEX.tar.gz",
		},
	})

	MustRegister(Profile{
		Key:            "apt",
		Description:    "Debian/Devuan apt mirrors: pool packages, release files and package indexes",
		PackageManager: "apt",
		CacheableSuffixes: []string{
			".deb",
			".udeb",
			"/Release",
			"/InRelease",
			"/Release.gpg",
			"/Packages.gz",
			"/Packages.xz",
		},
	})

	MustRegister(Profile{
		Key:            "slackware",
		Description:    "Slackware mirrors: txz/tgz packages, signatures and package lists",
		PackageManager: "slapt-get",
		CacheableSuffixes: []string{
			".txz",
			".tgz",
			".asc",
			"PACKAGES.TXT",
			"CHECKSUMS.md5",
		},
	})
}
