/*
 * Copyright (c) 2024, NVIDIA CORPORATION.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package names sorts and compacts device and interface names.
package names

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var compactRegexp, expandRegexp *regexp.Regexp

func init() {
	compactRegexp = regexp.MustCompile(`^(.*?)(0*\d+)$`)
	expandRegexp = regexp.MustCompile(`^(.*?)\[(.*?)\]$`)
}

// NaturalLess reports whether a sorts before b when digit runs are compared
// by their numerical value, e.g. "Ethernet1/2" < "Ethernet1/10".
func NaturalLess(a, b string) bool {
	if c := naturalCompare(a, b); c != 0 {
		return c < 0
	}
	return a < b
}

// Compare is the three-way form of NaturalLess, for use with slices.SortFunc
func Compare(a, b string) int {
	if c := naturalCompare(a, b); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// SortNatural sorts names in place in natural order
func SortNatural(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		return NaturalLess(names[i], names[j])
	})
}

func naturalCompare(a, b string) int {
	ta, tb := tokenize(a), tokenize(b)
	for i := 0; i < len(ta) && i < len(tb); i++ {
		x, y := ta[i], tb[i]
		if isDigit(x[0]) && isDigit(y[0]) {
			if c := compareNumbers(x, y); c != 0 {
				return c
			}
			continue
		}
		if c := strings.Compare(x, y); c != 0 {
			return c
		}
	}
	return len(ta) - len(tb)
}

// compareNumbers compares two digit runs of arbitrary length
func compareNumbers(x, y string) int {
	x = strings.TrimLeft(x, "0")
	y = strings.TrimLeft(y, "0")
	if len(x) != len(y) {
		return len(x) - len(y)
	}
	return strings.Compare(x, y)
}

// tokenize splits a name into alternating digit and non-digit runs
func tokenize(s string) []string {
	var tokens []string
	start := 0
	for i := 1; i <= len(s); i++ {
		if i == len(s) || isDigit(s[i]) != isDigit(s[i-1]) {
			tokens = append(tokens, s[start:i])
			start = i
		}
	}
	return tokens
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// Compact compresses a list of names into a compact range format
func Compact(names []string) []string {
	groups := make(map[string][]string)

	for _, name := range names {
		matches := compactRegexp.FindStringSubmatch(name)
		if matches != nil {
			prefix, numStr := matches[1], matches[2]
			groups[prefix] = append(groups[prefix], numStr)
		} else {
			groups[name] = nil
		}
	}

	prefixes := make([]string, 0, len(groups))
	for prefix := range groups {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)

	var result []string
	for _, prefix := range prefixes {
		numbers := groups[prefix]
		sort.Slice(numbers, func(i, j int) bool {
			return atoi(numbers[i]) < atoi(numbers[j])
		})
		result = append(result, prefix+compressRange(numbers))
	}

	return result
}

// Expand decompresses a list of compacted names back to individual entries
func Expand(compressed []string) []string {
	var result []string

	for _, entry := range compressed {
		matches := expandRegexp.FindStringSubmatch(entry)
		if matches == nil {
			result = append(result, entry)
			continue
		}
		prefix, ranges := matches[1], matches[2]
		for _, part := range strings.Split(ranges, ",") {
			if bounds := strings.Split(part, "-"); len(bounds) == 2 {
				width := len(bounds[0]) // preserve leading zeros
				for i := atoi(bounds[0]); i <= atoi(bounds[1]); i++ {
					result = append(result, fmt.Sprintf("%s%0*d", prefix, width, i))
				}
			} else {
				result = append(result, prefix+part)
			}
		}
	}
	return result
}

func compressRange(numbers []string) string {
	switch len(numbers) {
	case 0:
		return ""
	case 1:
		return numbers[0]
	default:
		var parts []string
		start, end := numbers[0], numbers[0]

		for i := 1; i < len(numbers); i++ {
			if atoi(numbers[i]) == atoi(end)+1 {
				end = numbers[i]
			} else {
				parts = append(parts, formatRange(start, end))
				start, end = numbers[i], numbers[i]
			}
		}
		parts = append(parts, formatRange(start, end))

		return "[" + strings.Join(parts, ",") + "]"
	}
}

func formatRange(start, end string) string {
	if start == end {
		return start
	}
	return start + "-" + end
}

// atoi converts a zero-padded string number to an integer
func atoi(s string) int {
	num, _ := strconv.Atoi(s)
	return num
}
