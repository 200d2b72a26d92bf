package git

import (
	"fmt"
	"strings"
	"time"
)

// parseRefs reads for-each-ref output produced with refFormat.
func parseRefs(output string) BranchListing {
	var listing BranchListing
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, fieldSep)
		if len(fields) < 2 {
			continue
		}
		head, refname := fields[0], fields[1]
		symref := ""
		if len(fields) > 2 {
			symref = fields[2]
		}

		switch {
		case strings.HasPrefix(refname, "refs/heads/"):
			listing.Local = append(listing.Local, LocalBranch{
				Name:      strings.TrimPrefix(refname, "refs/heads/"),
				IsCurrent: head == "*",
			})
		case strings.HasPrefix(refname, "refs/remotes/"):
			name := strings.TrimPrefix(refname, "refs/remotes/")
			// origin/HEAD and friends point at another remote branch.
			if symref != "" || strings.HasSuffix(name, "/HEAD") {
				continue
			}
			listing.Remote = append(listing.Remote, RemoteBranch{Name: name})
		}
	}
	return listing
}

// parseLog reads git log output produced with logFormat.
func parseLog(output string) ([]LogEntry, error) {
	var entries []LogEntry
	for _, record := range strings.Split(output, recordSep) {
		record = strings.Trim(record, "\r\n")
		if record == "" {
			continue
		}
		fields := strings.SplitN(record, fieldSep, 4)
		if len(fields) != 4 {
			return nil, fmt.Errorf("unexpected log record %q", record)
		}
		authoredAt, err := time.Parse(time.RFC3339, fields[2])
		if err != nil {
			return nil, fmt.Errorf("parse author date of %s: %w", fields[0], err)
		}
		entries = append(entries, LogEntry{
			Hash:       fields[0],
			AuthorName: fields[1],
			AuthoredAt: authoredAt,
			Message:    fields[3],
		})
	}
	return entries, nil
}

// parseStatus reads `git status --porcelain=v2 --branch` output.
func parseStatus(output string) Status {
	var st Status
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		switch line[0] {
		case '#':
			if head, ok := strings.CutPrefix(line, "# branch.head "); ok {
				if head == "(detached)" {
					st.Detached = true
				} else {
					st.CurrentBranch = head
				}
			}
		case '1':
			// 1 XY sub mH mI mW hH hI path
			if parts := strings.SplitN(line, " ", 9); len(parts) == 9 {
				st.ChangedFiles = append(st.ChangedFiles, trackedChange(parts[1], parts[8]))
			}
		case '2':
			// 2 XY sub mH mI mW hH hI Xscore path<TAB>origPath
			if parts := strings.SplitN(line, " ", 10); len(parts) == 10 {
				path, _, _ := strings.Cut(parts[9], "\t")
				st.ChangedFiles = append(st.ChangedFiles, trackedChange(parts[1], path))
			}
		case 'u':
			// u XY sub m1 m2 m3 mW h1 h2 h3 path
			if parts := strings.SplitN(line, " ", 11); len(parts) == 11 {
				st.ChangedFiles = append(st.ChangedFiles, FileChange{Path: parts[10], Kind: ChangeUnmerged, Code: parts[1]})
			}
		case '?':
			st.ChangedFiles = append(st.ChangedFiles, FileChange{Path: strings.TrimPrefix(line, "? "), Kind: ChangeUntracked, Code: "??"})
		}
	}
	return st
}

func trackedChange(xy, path string) FileChange {
	kind := ChangeUnstaged
	if len(xy) == 2 && xy[0] != '.' {
		kind = ChangeStaged
	}
	return FileChange{Path: path, Kind: kind, Code: xy}
}
